package engine

import (
	"io"
	"log/slog"
)

const SubscriberBufferSize = subscriberBufferSize

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
