package controller

import (
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamDefinitionController struct {
	Service *service.ExamDefinitionService
}

func NewExamDefinitionController(svc *service.ExamDefinitionService) *ExamDefinitionController {
	return &ExamDefinitionController{Service: svc}
}

// @Summary 设置单元考试
// @Tags 考试管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Param body body service.ExamInput true "考试设置"
// @Success 200 {object} util.Response{data=model.Exam}
// @Router /api/teacher/units/{unitId}/exam [put]
func (c *ExamDefinitionController) UpsertExam(ctx *gin.Context) {
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	var req service.ExamInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.Service.Upsert(ctx.Request.Context(), unitID, req)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary 获取单元考试设置
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Success 200 {object} util.Response{data=model.Exam}
// @Router /api/teacher/units/{unitId}/exam [get]
func (c *ExamDefinitionController) GetExam(ctx *gin.Context) {
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	exam, err := c.Service.GetByUnit(ctx.Request.Context(), unitID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// @Summary 考试统计
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param examId path int true "考试ID"
// @Success 200 {object} util.Response{data=service.ExamStats}
// @Router /api/teacher/exams/{examId}/stats [get]
func (c *ExamDefinitionController) GetStats(ctx *gin.Context) {
	examID, ok := uintParam(ctx, "examId")
	if !ok {
		return
	}

	stats, err := c.Service.Stats(ctx.Request.Context(), examID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
