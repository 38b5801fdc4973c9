package inventory

import (
	"io"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

func loggerForTest() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard, Format: "json"})
}
