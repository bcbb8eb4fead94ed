package controller

import (
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExamController serves the learner side of the attempt lifecycle. The /api/exams and
// /api/learning/exams route families both land here.
type ExamController struct {
	Service service.ExamService
}

func NewExamController(svc service.ExamService) *ExamController {
	return &ExamController{Service: svc}
}

// uintParam reads a positive numeric path parameter, answering 400 when it is malformed.
func uintParam(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthenticated(ctx)
		return nil, false
	}
	return user, true
}

// @Summary 开始考试
// @Description 抽题并创建一次新的考试实例
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param examId path int true "考试ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/exams/{examId}/start [post]
func (c *ExamController) StartExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	examID, ok := uintParam(ctx, "examId")
	if !ok {
		return
	}

	res, err := c.Service.StartAttempt(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 开始单元考试
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Router /api/learning/exams/{unitId}/start [post]
func (c *ExamController) StartUnitExam(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	res, err := c.Service.StartAttemptForUnit(ctx.Request.Context(), user.UserID, unitID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 获取考试记录
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param examId path int true "考试ID"
// @Success 200 {object} util.Response{data=service.AttemptHistory}
// @Router /api/exams/{examId}/attempts [get]
func (c *ExamController) ListAttempts(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	examID, ok := uintParam(ctx, "examId")
	if !ok {
		return
	}

	hist, err := c.Service.ListAttempts(ctx.Request.Context(), user.UserID, examID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, hist)
}

// @Summary 获取考试实例
// @Description 返回题目与选项（不含正确答案）以及已保存的作答
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "实例ID"
// @Success 200 {object} util.Response{data=service.InstanceView}
// @Router /api/exams/instances/{instanceId} [get]
func (c *ExamController) GetInstance(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	view, err := c.Service.GetInstance(ctx.Request.Context(), user.UserID, ctx.Param("instanceId"))
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存答案
// @Tags 考试模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "实例ID"
// @Param body body service.SaveAnswerInput true "作答"
// @Success 200 {object} util.Response
// @Router /api/exams/instances/{instanceId}/answer [post]
func (c *ExamController) SaveAnswer(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.SaveAnswerInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Service.SaveAnswer(ctx.Request.Context(), user.UserID, ctx.Param("instanceId"), req); err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"success": true})
}

// @Summary 提交考试
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "实例ID"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Router /api/exams/instances/{instanceId}/submit [post]
func (c *ExamController) Submit(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.Service.Submit(ctx.Request.Context(), user.UserID, ctx.Param("instanceId"))
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 获取考试结果
// @Description 逐题明细是否返回由考试的公布策略决定
// @Tags 考试模块
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "实例ID"
// @Success 200 {object} util.Response{data=service.ResultView}
// @Router /api/exams/instances/{instanceId}/results [get]
func (c *ExamController) GetResults(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	view, err := c.Service.GetResults(ctx.Request.Context(), user.UserID, ctx.Param("instanceId"))
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
