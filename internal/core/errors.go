package core

import (
	"fmt"

	"github.com/MishthiJain8/joinright/internal/domain"
)

// The session layer reports failures through a closed error set so
// callers branch on error kind instead of unstructured strings.

type DeviceErrorCode string

const (
	DevicePermissionDenied DeviceErrorCode = "permission-denied"
	DeviceBusy             DeviceErrorCode = "busy"
	DeviceNotFound         DeviceErrorCode = "not-found"
	DeviceUnsupported      DeviceErrorCode = "unsupported"
	DeviceUserCancelled    DeviceErrorCode = "user-cancelled"
)

// DeviceError is a local capture failure. It is recovered by degrading
// capability or surfacing a retry prompt, never by tearing the session down.
type DeviceError struct {
	Code DeviceErrorCode
	Op   string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// TransportError is a signaling channel failure. The session controller
// decides reconnect vs. abort; links tolerate it as Reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NegotiationError means one specific peer link failed to connect.
// It is isolated to that link; the peer is evicted from the roster.
type NegotiationError struct {
	Remote domain.RemoteID
	Reason string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("peer %s: %s: %v", e.Remote, e.Reason, e.Err)
	}
	return fmt.Sprintf("peer %s: %s", e.Remote, e.Reason)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

type AdmissionReason string

const (
	AdmissionRejected     AdmissionReason = "rejected"
	AdmissionMeetingEnded AdmissionReason = "meeting-ended"
	AdmissionRoomLocked   AdmissionReason = "room-locked"
)

// AdmissionError is terminal for the local session.
type AdmissionError struct {
	Reason  AdmissionReason
	Message string
}

func (e *AdmissionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("admission %s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("admission %s", e.Reason)
}
