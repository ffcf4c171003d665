package logging

import (
	"log/slog"
	"time"
)

// Field names shared by all components so log queries stay uniform.
const (
	FieldService       = "service"
	FieldRequestID     = "request_id"
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldPortalAddress = "portal_address"
	FieldDDocID        = "ddoc_id"
	FieldTrigger       = "trigger"
	FieldTool          = "tool"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatus        = "status"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldSubject       = "subject"
)

func Service(name string) slog.Attr { return slog.String(FieldService, name) }

func EventID(id string) slog.Attr { return slog.String(FieldEventID, id) }

func EventType(t string) slog.Attr { return slog.String(FieldEventType, t) }

// PortalAddress returns the tenant scope attribute.
func PortalAddress(addr string) slog.Attr { return slog.String(FieldPortalAddress, addr) }

func DDocID(id string) slog.Attr { return slog.String(FieldDDocID, id) }

// Trigger names the scheduler trigger that produced a log line.
func Trigger(name string) slog.Attr { return slog.String(FieldTrigger, name) }

func Tool(name string) slog.Attr { return slog.String(FieldTool, name) }

func Method(method string) slog.Attr { return slog.String(FieldMethod, method) }

func Path(path string) slog.Attr { return slog.String(FieldPath, path) }

func Subject(subject string) slog.Attr { return slog.String(FieldSubject, subject) }

func Status(status string) slog.Attr { return slog.String(FieldStatus, status) }

// Duration reports d in milliseconds.
func Duration(d time.Duration) slog.Attr { return slog.Int64(FieldDuration, d.Milliseconds()) }

// Error returns the error attribute. A nil error renders as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
