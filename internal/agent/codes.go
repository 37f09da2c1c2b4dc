package agent

import (
	xerrors "NearIntents/internal/errors"
)

const (
	// CodeNoLiquidity 表示总线没有返回任何报价。
	CodeNoLiquidity xerrors.Code = "NO_LIQUIDITY"
	// CodeNoViableOption 表示返回的报价全部不可用。
	CodeNoViableOption xerrors.Code = "NO_VIABLE_OPTION"
	// CodeBusRejected 表示总线明确拒绝了已签名的意图。
	CodeBusRejected xerrors.Code = "BUS_REJECTED"
	// CodeInsufficientBalance 表示账户余额不足以覆盖输入金额。
	CodeInsufficientBalance xerrors.Code = "INSUFFICIENT_BALANCE"
	// CodeStorageRegistrationFailed 表示目标代币的存储登记失败。
	CodeStorageRegistrationFailed xerrors.Code = "STORAGE_REGISTRATION_FAILED"
	// CodeNetworkTimeout 表示对外部服务的调用超时。
	CodeNetworkTimeout xerrors.Code = "NETWORK_TIMEOUT"
)

func init() {
	xerrors.Register(CodeNoLiquidity, xerrors.Attributes{
		Message:   "solver bus returned no quotes",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeNoViableOption, xerrors.Attributes{
		Message:   "no viable quote among returned options",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeBusRejected, xerrors.Attributes{
		Message:   "solver bus rejected the signed intent",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:   "account balance below requested amount",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeStorageRegistrationFailed, xerrors.Attributes{
		Message:   "token storage registration failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeNetworkTimeout, xerrors.Attributes{
		Message:   "call to external service timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}
