package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/app"
	_ "github.com/clinicdesk/clinicdesk/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	require.Equal(t, "1", os.Getenv("CLINICDESK_TEST_MODE"))
	require.True(t, app.InTestMode())
	main()
}
