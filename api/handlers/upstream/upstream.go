// Package upstream classifies failures of the wallet substrate and the ledger
// backends so handlers can answer with a stable message.
package upstream

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

// ErrorType classifies upstream errors for appropriate handling.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the wallet is unreachable.
	ErrorTypeConnectivity
	// ErrorTypeTimeout indicates the operation timed out.
	ErrorTypeTimeout
	// ErrorTypeRejected indicates the wallet answered and refused the call.
	ErrorTypeRejected
	// ErrorTypeCanceled indicates the caller went away.
	ErrorTypeCanceled
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConnectivity:
		return "connectivity"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeRejected:
		return "rejected"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"no such host",
	"dial tcp",
	"dial unix",
	"eof",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"server shutdown",
}

var timeoutPatterns = []string{
	"timeout",
	"deadline exceeded",
	"timed out",
}

// Classify determines the type of an upstream error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var werr *wallet.Error
	if errors.As(err, &werr) || errors.Is(err, wallet.ErrEmptyTxid) || errors.Is(err, wallet.ErrNotAccepted) {
		return ErrorTypeRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectivityPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeConnectivity
		}
	}
	for _, pattern := range timeoutPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeTimeout
		}
	}
	return ErrorTypeUnknown
}

// UserMessage returns a client-safe message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Wallet temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeRejected:
		var werr *wallet.Error
		if errors.As(err, &werr) && werr.Description != "" {
			return "Wallet rejected the request: " + werr.Description
		}
		return "Wallet rejected the request."
	case ErrorTypeCanceled:
		return "Request canceled."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
