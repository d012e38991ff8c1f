package types

import "github.com/Masterminds/semver/v3"

var (
	APPNAME = "QQOperator"
	VERSION = semver.MustParse(VERSION_MAIN + VERSION_PRERELEASE + VERSION_BUILD_METADATA)

	// VERSION_MAIN 主版本号
	VERSION_MAIN = "1.2.0"
	// VERSION_PRERELEASE 先行版本号
	VERSION_PRERELEASE = ""
	// VERSION_BUILD_METADATA 版本编译信息
	VERSION_BUILD_METADATA = ""
)
