package dealer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{
			name:    "input",
			err:     Inputf("verifier %q is not allowed", "bogus"),
			kind:    KindInput,
			status:  http.StatusUnprocessableEntity,
			message: `verifier "bogus" is not allowed`,
		},
		{
			name:    "information not found",
			err:     InformationNotFound("required registration information missing", errors.New("certificateId is required")),
			kind:    KindInformationNotFound,
			status:  http.StatusNotFound,
			message: "required registration information missing: certificateId is required",
		},
		{
			name:    "resource not found",
			err:     fmt.Errorf("describe certificate: %w", ErrResourceNotFound),
			kind:    KindResourceNotFound,
			status:  http.StatusNotFound,
			message: "describe certificate: resource not found",
		},
		{
			name:    "verification",
			err:     Verification("device is not verified", nil),
			kind:    KindVerification,
			status:  http.StatusInternalServerError,
			message: "device is not verified",
		},
		{
			name:    "processing",
			err:     Processing("create thing", errors.New("boom")),
			kind:    KindProcessing,
			status:  http.StatusInternalServerError,
			message: "create thing: boom",
		},
		{
			name:    "unclassified",
			err:     errors.New("unexpected"),
			kind:    KindProcessing,
			status:  http.StatusInternalServerError,
			message: "unexpected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			require.Equal(t, tt.kind, f.Kind)
			require.Equal(t, tt.status, f.Status)
			require.Equal(t, tt.message, f.Message)
		})
	}
}

func TestProcessing_keepsAdapterCategory(t *testing.T) {
	err := Processing("describe CA certificate", fmt.Errorf("iot: %w", ErrResourceNotFound))
	require.ErrorIs(t, err, ErrResourceNotFound)
	require.NotErrorIs(t, err, ErrProcessing)
	require.Equal(t, KindResourceNotFound, Classify(err).Kind)
}

func TestVerification_hidesAdapterCategory(t *testing.T) {
	err := Verification("invoke verifier checkDevice", fmt.Errorf("function checkDevice: %w", ErrResourceNotFound))
	require.ErrorIs(t, err, ErrVerification)
	require.NotErrorIs(t, err, ErrResourceNotFound)

	f := Classify(err)
	require.Equal(t, KindVerification, f.Kind)
	require.Equal(t, http.StatusInternalServerError, f.Status)
	require.Equal(t, "invoke verifier checkDevice: function checkDevice: resource not found", f.Message)
}

func TestFunc(t *testing.T) {
	var d Dealer[string] = Func[string](func(ctx context.Context) (string, error) {
		return "cargo", nil
	})

	cargo, err := d.Deal(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cargo", cargo)
}
