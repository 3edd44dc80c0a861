package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func UnaryGrpcRequestTimeInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		reqTime := time.Since(start)
		logrus.Debugf("request time: %v: %v", info.FullMethod, reqTime)
		return resp, err
	}
}

// RequestTime logs the duration and status of every http request.
func RequestTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		reqTime := time.Since(start)

		entry := logrus.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"duration": reqTime,
		})
		if c.Writer.Status() >= 500 {
			entry.Errorf("request: %s %s", c.Request.Method, c.Request.URL.Path)
			return
		}
		entry.Infof("request: %s %s", c.Request.Method, c.Request.URL.Path)
	}
}
