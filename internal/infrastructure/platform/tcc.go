package platform

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBundleID TCC 数据库中记录本应用授权的客户端标识
const DefaultBundleID = "io.ganeshrvel.openmtp"

// userTCCDatabase 用户级 TCC 数据库（相对家目录），目录授权记录在这里
const userTCCDatabase = "Library/Application Support/com.apple.TCC/TCC.db"

// tccServices 目录权限对应的 TCC 服务名
var tccServices = map[Capability]string{
	CapabilityDesktop:   "kTCCServiceSystemPolicyDesktopFolder",
	CapabilityDocuments: "kTCCServiceSystemPolicyDocumentsFolder",
	CapabilityDownloads: "kTCCServiceSystemPolicyDownloadsFolder",
	CapabilityMusic:     "kTCCServiceMediaLibrary",
	CapabilityPictures:  "kTCCServicePhotos",
}

// TCC auth_value / auth_reason 取值
const (
	tccAuthDenied  = 0
	tccAuthUnknown = 1
	tccAuthAllowed = 2
	tccAuthLimited = 3

	tccReasonServicePolicy  = 5
	tccReasonMDMPolicy      = 6
	tccReasonOverridePolicy = 7
)

// errTCCUnavailable TCC 数据库无法读取（通常是缺少完全磁盘访问）
var errTCCUnavailable = errors.New("tcc database unavailable")

// queryTCC 从 TCC 数据库读取某个客户端对某项服务的授权
//
// 只读打开，不会触发系统授权框。没有记录时返回 not determined。
func queryTCC(dbPath, service, client string) (PermissionStatus, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return PermissionStatusNotDetermined, fmt.Errorf("%w: %v", errTCCUnavailable, err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return PermissionStatusNotDetermined, fmt.Errorf("%w: %v", errTCCUnavailable, err)
	}
	defer db.Close()

	var authValue, authReason int
	err = db.QueryRow(`
		SELECT auth_value, auth_reason
		FROM access
		WHERE service = ? AND client = ?
		ORDER BY auth_value DESC
		LIMIT 1
	`, service, client).Scan(&authValue, &authReason)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return PermissionStatusNotDetermined, nil
	case err != nil:
		return PermissionStatusNotDetermined, fmt.Errorf("%w: %v", errTCCUnavailable, err)
	}

	switch authValue {
	case tccAuthAllowed, tccAuthLimited:
		return PermissionStatusAuthorized, nil
	case tccAuthUnknown:
		return PermissionStatusNotDetermined, nil
	case tccAuthDenied:
		switch authReason {
		case tccReasonServicePolicy, tccReasonMDMPolicy, tccReasonOverridePolicy:
			return PermissionStatusRestricted, nil
		}
		return PermissionStatusDenied, nil
	default:
		return PermissionStatusDenied, fmt.Errorf("unexpected tcc auth_value %d for %s", authValue, service)
	}
}

// folderStatus 查询目录权限，不触发系统授权框
//
// 优先读取 TCC 数据库；读不到时，只有在用户已经对授权框做出过选择后
// 才实际读取目录（此时系统不会再弹框），否则返回 not determined。
//
// Parameters:
//   - tccPath: 用户级 TCC 数据库路径
//   - client: 应用的 bundle ID
//   - capability: 目录权限
//   - dir: 目录绝对路径
//   - decided: 用户是否已经对该目录的授权框做出选择
func folderStatus(tccPath, client string, capability Capability, dir string, decided bool) (PermissionStatus, error) {
	service, ok := tccServices[capability]
	if !ok {
		return PermissionStatusDenied, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}

	// stat 只读元数据，不受 TCC 限制
	if _, err := os.Stat(dir); err != nil {
		return PermissionStatusDenied, fmt.Errorf("probe %s: %w", dir, err)
	}

	status, err := queryTCC(tccPath, service, client)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, errTCCUnavailable) {
		return status, err
	}

	if decided {
		return probeDir(dir)
	}
	return PermissionStatusNotDetermined, nil
}
