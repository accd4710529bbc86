// Package services 实现后台进程的权限用例
//
// 组成：
//   - PermissionService：Prober，查询/请求权限，失败一律视为未授权
//   - PermissionWorkflow：启动时与定时检查，响应界面的重新检查和打开设置请求
//   - FreshInstallService：首次安装标记
//   - messages：权限状态到对话框文案的映射
//
// 与界面的交互只通过 events.EventBus，不直接依赖 Wails。
package services
