package intents

import (
	xerrors "NearIntents/internal/errors"
)

const (
	// CodeIncompleteRequest 表示报价请求缺少输入或输出资产。
	CodeIncompleteRequest xerrors.Code = "INCOMPLETE_REQUEST"
	// CodeStaleQuote 表示报价的截止时间已经过期，禁止签名或提交。
	CodeStaleQuote xerrors.Code = "STALE_QUOTE"
	// CodeSigningFailure 表示对报价载荷签名失败。
	CodeSigningFailure xerrors.Code = "SIGNING_FAILURE"
)

func init() {
	xerrors.Register(CodeIncompleteRequest, xerrors.Attributes{
		Message:   "intent request incomplete",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeStaleQuote, xerrors.Attributes{
		Message:   "quote deadline already passed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeSigningFailure, xerrors.Attributes{
		Message:   "failed to sign quote payload",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}
