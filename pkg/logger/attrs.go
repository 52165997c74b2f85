package logger

import (
	"fmt"
	"log/slog"
)

func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

func OrderID(id string) slog.Attr {
	return slog.String("order_id", id)
}

func Step[T fmt.Stringer](step T) slog.Attr {
	return slog.String("step", step.String())
}

func Op(name string) slog.Attr {
	return slog.String("op", name)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
