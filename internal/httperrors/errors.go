// Package httperrors turns technical HTTP/network failures into
// user-friendly terminal output. The script clients report transport errors
// verbatim; before they reach the user, the CLI routes them through here so
// a DNS typo or an untrusted FileMaker Server certificate reads like a
// diagnosis instead of a stack of wrapped errors.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"fmscript/cli/internal/logging"
)

// FormatNetworkError converts technical HTTP/network errors into
// user-friendly messages. It detects common error types (timeout, DNS,
// connection refused, TLS) and displays troubleshooting information.
func FormatNetworkError(err error, context string) error {
	if err == nil {
		return nil
	}

	displayErrorMessage(err, context)

	// Return wrapped error for logging/debugging
	return fmt.Errorf("network error: %w", err)
}

// displayErrorMessage shows a formatted error message based on error type.
func displayErrorMessage(err error, context string) {
	if isTimeoutError(err) {
		showTimeoutError(context)
		return
	}

	if isDNSError(err) {
		showDNSError(context)
		return
	}

	if isConnectionRefusedError(err) {
		showConnectionRefusedError(context)
		return
	}

	if isTLSError(err) {
		showTLSError(context)
		return
	}

	showGenericError(context, logging.Mask(err.Error()))
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused")
}

// isTLSError checks if the error is a TLS error.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// showTimeoutError displays a user-friendly timeout error message.
func showTimeoutError(context string) {
	pterm.Printf("⏱️  Connection timeout while %s\n", context)
	pterm.Println()
	pterm.Println("The server took too long to respond. This could mean:")
	pterm.Println("  • The script is still running on the server")
	pterm.Println("  • Slow network connection")
	pterm.Println("  • FileMaker Server is under heavy load")
	pterm.Println()
	pterm.Println("Long-running scripts may need a higher --timeout.")
	pterm.Println()
}

// showDNSError displays a user-friendly DNS error message.
func showDNSError(context string) {
	pterm.Printf("🌐 Cannot resolve server address while %s\n", context)
	pterm.Println()
	pterm.Println("Unable to look up the FileMaker server. Please check:")
	pterm.Println("  • The hostname in your connection URL (fmscript status)")
	pterm.Println("  • Your internet connection is working")
	pterm.Println("  • DNS settings are correct")
	pterm.Println()
}

// showConnectionRefusedError displays a user-friendly connection refused message.
func showConnectionRefusedError(context string) {
	pterm.Printf("🚫 Connection refused while %s\n", context)
	pterm.Println()
	pterm.Println("The server is not accepting connections. This could mean:")
	pterm.Println("  • The Data API / OData API is disabled on the server")
	pterm.Println("  • Wrong port in the connection URL")
	pterm.Println("  • Firewall is blocking the connection")
	pterm.Println()
	pterm.Println("Enable the APIs in the FileMaker Server admin console and retry.")
	pterm.Println()
}

// showTLSError displays a user-friendly TLS error message.
func showTLSError(context string) {
	pterm.Printf("🔒 Secure connection failed while %s\n", context)
	pterm.Println()
	pterm.Println("Cannot establish a secure HTTPS connection. This could mean:")
	pterm.Println("  • The server uses a self-signed or expired certificate")
	pterm.Println("  • Network proxy interfering with HTTPS")
	pterm.Println("  • System clock is incorrect")
	pterm.Println()
	pterm.Println("For servers without a valid certificate, use an http:// URL")
	pterm.Println("only on networks you trust.")
	pterm.Println()
}

// showGenericError displays a generic message for unrecognized errors.
func showGenericError(context string, errDetails string) {
	pterm.Printf("❌ Cannot reach the FileMaker server while %s\n", context)
	pterm.Println()
	pterm.Println("Please check:")
	pterm.Println("  • Your connection URL (fmscript status)")
	pterm.Println("  • Whether the server is accessible from your network")
	pterm.Println()

	if errDetails != "" {
		shortErr := errDetails
		if len(shortErr) > 100 {
			shortErr = shortErr[:100] + "..."
		}
		pterm.Debug.Printf("Technical details: %s\n", shortErr)
		pterm.Println()
	}
}
