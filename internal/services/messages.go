package services

import (
	"github.com/openmtp/permbridge/internal/infrastructure/platform"
	"github.com/openmtp/permbridge/pkg/events"
)

// PermissionMessage 权限对话框文案
type PermissionMessage struct {
	Title              string `json:"title"`
	Message            string `json:"message"`
	ShowSettingsButton bool   `json:"showSettingsButton"`
}

// permissionMessages 状态 -> 文案，只有需要提示的状态才有条目
var permissionMessages = map[platform.PermissionStatus]PermissionMessage{
	platform.PermissionStatusDenied: {
		Title:              "Full Disk Access Required",
		Message:            "OpenMTP needs Full Disk Access to read and write files on your computer. Please grant permission in System Preferences to use all features.",
		ShowSettingsButton: true,
	},
	platform.PermissionStatusNotDetermined: {
		Title:              "Permission Required",
		Message:            "OpenMTP needs permission to access files on your computer. Please grant Full Disk Access to use all features.",
		ShowSettingsButton: true,
	},
	platform.PermissionStatusRestricted: {
		Title:              "Access Restricted",
		Message:            "Full Disk Access is restricted on this device. Please contact your system administrator.",
		ShowSettingsButton: false,
	},
}

// GetPermissionMessage 返回权限状态对应的提示文案
//
// authorized、unsupported 以及未知状态返回 nil。
func GetPermissionMessage(status platform.PermissionStatus) *PermissionMessage {
	msg, ok := permissionMessages[status]
	if !ok {
		return nil
	}
	return &msg
}

// BuildStatusPayload 把探测结果转换为推送给界面的负载
func BuildStatusPayload(capability platform.Capability, status platform.PermissionStatus, seq uint64) events.StatusPayload {
	payload := events.StatusPayload{
		IsAuthorized: status.IsAuthorized(),
		Status:       status.String(),
		Capability:   capability.String(),
		Seq:          seq,
	}
	if msg := GetPermissionMessage(status); msg != nil {
		payload.Title = msg.Title
		payload.Message = msg.Message
		payload.ShowButton = msg.ShowSettingsButton
	}
	return payload
}
