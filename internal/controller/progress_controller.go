package controller

import (
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ProgressController exposes what the progression unlocker wrote: course progress and notifications.
type ProgressController struct {
	Progress      *service.ProgressionUnlocker
	Notifications *service.NotificationService
}

func NewProgressController(progress *service.ProgressionUnlocker, notifications *service.NotificationService) *ProgressController {
	return &ProgressController{Progress: progress, Notifications: notifications}
}

// @Summary 课程学习进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Router /api/courses/{courseId}/progress [get]
func (c *ProgressController) GetCourseProgress(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	courseID, ok := uintParam(ctx, "courseId")
	if !ok {
		return
	}

	progress, err := c.Progress.CourseProgress(ctx.Request.Context(), user.UserID, courseID)
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 通知列表
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "仅未读"
// @Success 200 {object} util.Response{data=[]model.Notification}
// @Router /api/notifications [get]
func (c *ProgressController) ListNotifications(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	list, err := c.Notifications.List(ctx.Request.Context(), user.UserID, ctx.Query("unread") == "true")
	if err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 标记通知已读
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "通知ID"
// @Success 200 {object} util.Response
// @Router /api/notifications/{id}/read [post]
func (c *ProgressController) MarkNotificationRead(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}

	if err := c.Notifications.MarkRead(ctx.Request.Context(), user.UserID, id); err != nil {
		util.WriteError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
