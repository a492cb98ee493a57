package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestErrorCode(t *testing.T) {
	convey.Convey("Given response statuses", t, func() {
		convey.So(errorCode(http.StatusBadRequest), convey.ShouldEqual, codeBadRequest)
		convey.So(errorCode(http.StatusNotFound), convey.ShouldEqual, codeNotFound)
		convey.So(errorCode(http.StatusConflict), convey.ShouldEqual, codeConfigurationMissing)
		convey.So(errorCode(http.StatusTooManyRequests), convey.ShouldEqual, codeBackpressure)
		convey.So(errorCode(http.StatusServiceUnavailable), convey.ShouldEqual, codeStoreUnavailable)
		convey.So(errorCode(http.StatusBadGateway), convey.ShouldEqual, codeInternal)
		convey.So(errorCode(http.StatusUnauthorized), convey.ShouldEqual, "client_error")

		convey.So(errorSeverity(http.StatusServiceUnavailable), convey.ShouldEqual, "medium")
		convey.So(errorSeverity(http.StatusInternalServerError), convey.ShouldEqual, "high")
		convey.So(errorSeverity(http.StatusBadRequest), convey.ShouldEqual, "low")
	})
}

func TestMetricsMiddleware(t *testing.T) {
	convey.Convey("Given a wrapped handler that fails", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusConflict, codeConfigurationMissing, NewKind("test", ErrBadRequest))
		}, "recompute")

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/teams/a/recompute", http.NoBody))

		convey.Convey("Then the status passes through untouched", func() {
			convey.So(w.Code, convey.ShouldEqual, http.StatusConflict)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, codeConfigurationMissing)
		})
	})
}
