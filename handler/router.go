package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
)

// NewRouter serves h over plain HTTP. Each request is converted into the
// event the Lambda runtime would deliver.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	serve := adapt(h)
	for _, rt := range routes {
		router.Handle(rt.method, rt.suffix, serve)
	}
	router.NoRoute(serve)
	return router
}

func adapt(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid body"})
			return
		}
		headers := make(map[string]string, len(c.Request.Header))
		for k := range c.Request.Header {
			headers[k] = c.GetHeader(k)
		}
		query := make(map[string]string)
		for k, v := range c.Request.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}
		event := events.APIGatewayV2HTTPRequest{
			RawPath:               c.Request.URL.Path,
			RawQueryString:        c.Request.URL.RawQuery,
			Headers:               headers,
			QueryStringParameters: query,
			Body:                  string(body),
			RequestContext: events.APIGatewayV2HTTPRequestContext{
				HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
					Method: c.Request.Method,
					Path:   c.Request.URL.Path,
				},
			},
		}

		resp, err := h.Handle(c.Request.Context(), event)
		if err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		c.Data(resp.StatusCode, resp.Headers["Content-Type"], []byte(resp.Body))
	}
}

// Serve runs the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(h),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("handler: serve %s: %w", addr, err)
	}
	return nil
}
