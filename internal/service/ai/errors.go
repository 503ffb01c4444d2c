package ai

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"

	"shopassist/internal/retry"
)

// ClassifyError wraps provider errors that carry a rate-limit or auth status
// into *retry.StatusError. Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var se *retry.StatusError
	if errors.As(err, &se) {
		return err
	}
	if code := statusOf(err); code != 0 {
		return &retry.StatusError{Code: code, Err: err}
	}
	return err
}

// statusPattern only accepts a status code where providers print one, so
// digits inside request ids or byte counts do not count.
var statusPattern = regexp.MustCompile(`(?:^|status code:?\s*|status:?\s*|error:?\s*|http\s*)(429|401|403)\b`)

func statusOf(err error) int {
	if code := sdkStatus(err); code != 0 {
		return classifiedStatus(code)
	}

	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	switch {
	case strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return http.StatusTooManyRequests
	case strings.Contains(msg, "unauthenticated"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "api key not valid"):
		return http.StatusUnauthorized
	}
	return 0
}

func sdkStatus(err error) int {
	var genaiErr *genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return openaiReqErr.HTTPStatusCode
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode
	}
	return 0
}

func classifiedStatus(code int) int {
	switch code {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden:
		return code
	}
	return 0
}
