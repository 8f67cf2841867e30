package stt

import (
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

// goSafe runs fn in a goroutine. A panic is logged, reported to Sentry and
// passed to onPanic instead of taking the process down.
func goSafe(logger *log.Logger, name string, fn func(), onPanic func(error)) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("%s: panic: %v", name, p)
				logger.Printf("stt: %v", err)
				sentry.CurrentHub().Recover(p)
				sentry.Flush(2 * time.Second)
				if onPanic != nil {
					onPanic(err)
				}
			}
		}()
		fn()
	}()
}
