package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Config{ServiceName: "queueboard"}, logger.InitializeTestZapLogger())
	assert.NoError(t, shutdown(context.Background()))
}
