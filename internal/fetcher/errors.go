package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	utls "github.com/refraction-networking/utls"
)

type failure int

const (
	failureConnection failure = iota
	failureDNS
	failureTimeout
)

func (f failure) String() string {
	switch f {
	case failureDNS:
		return "dns"
	case failureTimeout:
		return "timeout"
	}
	return "connection"
}

// classify buckets a transport error. DNS wins over timeout so a resolver timeout
// still goes through DNS recovery.
func classify(err error) failure {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failureDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}

	return failureConnection
}

// isConnectionLevel reports whether err came from the transport rather than the page.
// TLS rejections and redirect loops are not: another attempt fails the same way.
func isConnectionLevel(err error) bool {
	if err == nil {
		return false
	}

	// *url.Error is itself a net.Error, so judge what it wraps.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if isTLSRejection(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isTLSRejection(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		recordHeader     tls.RecordHeaderError
		uRecordHeader    utls.RecordHeaderError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &recordHeader) ||
		errors.As(err, &uRecordHeader)
}
