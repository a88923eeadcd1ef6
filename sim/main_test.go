package sim

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// Keep hourly progress logs out of test output.
	logrus.SetLevel(logrus.WarnLevel)
	os.Exit(m.Run())
}
