package controller

import (
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionBankController struct {
	Service *service.QuestionBankService
}

func NewQuestionBankController(svc *service.QuestionBankService) *QuestionBankController {
	return &QuestionBankController{Service: svc}
}

// @Summary 创建题目
// @Tags 题库模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Param body body service.QuestionInput true "题目"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /api/teacher/units/{unitId}/questions [post]
func (c *QuestionBankController) CreateQuestion(ctx *gin.Context) {
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	var req service.QuestionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Service.Create(ctx.Request.Context(), unitID, req)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 获取单元题库
// @Tags 题库模块
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Success 200 {object} util.Response{data=[]model.Question}
// @Router /api/teacher/units/{unitId}/questions [get]
func (c *QuestionBankController) ListQuestions(ctx *gin.Context) {
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	list, err := c.Service.List(ctx.Request.Context(), unitID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": list, "total": len(list)})
}

// @Summary 更新题目
// @Description 已被提交的考试引用的题目不可修改
// @Tags 题库模块
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param body body service.QuestionInput true "题目"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/teacher/questions/{id} [put]
func (c *QuestionBankController) UpdateQuestion(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}

	var req service.QuestionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.Service.Update(ctx.Request.Context(), id, req)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// @Summary 删除题目
// @Tags 题库模块
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/questions/{id} [delete]
func (c *QuestionBankController) DeleteQuestion(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}

	if err := c.Service.Delete(ctx.Request.Context(), id); err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type importRequest struct {
	Key string `json:"key" form:"key"`
}

// @Summary 导入题库
// @Description 上传 JSON/YAML 题库文件（file），或指定对象存储中已有文件的 key
// @Tags 题库模块
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param unitId path int true "单元ID"
// @Param file formData file false "题库文件"
// @Success 200 {object} util.Response{data=service.ImportResult}
// @Router /api/teacher/units/{unitId}/questions/import [post]
func (c *QuestionBankController) ImportQuestions(ctx *gin.Context) {
	unitID, ok := uintParam(ctx, "unitId")
	if !ok {
		return
	}

	var key string
	if file, err := ctx.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			util.BadRequest(ctx, "cannot read uploaded file")
			return
		}
		defer src.Close()

		key, err = c.Service.Upload(ctx.Request.Context(), unitID, file.Filename, src, file.Size)
		if err != nil {
			util.WriteError(ctx, err)
			return
		}
	} else {
		var req importRequest
		if err := ctx.ShouldBind(&req); err != nil || req.Key == "" {
			util.BadRequest(ctx, "file or key is required")
			return
		}
		key = req.Key
	}

	res, err := c.Service.Import(ctx.Request.Context(), unitID, key)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
