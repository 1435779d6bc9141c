package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "failure", Status(errors.New("boom")))
}

func TestTasksRun(t *testing.T) {
	before := testutil.ToFloat64(TasksRun.WithLabelValues("test", "success"))
	TasksRun.WithLabelValues("test", Status(nil)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TasksRun.WithLabelValues("test", "success")))
}
