package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestCreatePublisher_EmptyBrokerList(t *testing.T) {
	_, err := CreatePublisher("", watermill.NopLogger{})
	assert.ErrorContains(t, err, "broker list is empty")
}
