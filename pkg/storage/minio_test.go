package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDraftObjectName(t *testing.T) {
	at := time.Date(2025, 5, 4, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "drafts/user_12/2025-05-04/req-1-demand_letter.md",
		DraftObjectName("user:12", "req-1", "demand_letter", at))
	assert.Equal(t, "drafts/anonymous/2025-05-04/req-2-affidavit_of_loss.md",
		DraftObjectName("", "req-2", "affidavit_of_loss", at))
}
