package handlers

import (
	"fmt"
	"strconv"

	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck check api connect start
// @Summary Check messaging service status
// @Tags Shared
// @Success 200 {string} string "messaging service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("messaging service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// ErrorResponse error body
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// writeError map AppError to http status and body
func writeError(c *fiber.Ctx, err error) error {
	status := errprocess.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error: errprocess.GetMessage(err),
		Code:  errprocess.GetCode(err),
	})
}
