package s3labels

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Bucket: "labels"})
	require.Error(t, err)

	st, err := New(Config{Bucket: "labels", AccessKey: "ak", SecretKey: "sk", Endpoint: "localhost:9000"})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000/labels", st.publicBase)
}

func TestNew_PublicBaseOverride(t *testing.T) {
	st, err := New(Config{
		Bucket: "labels", AccessKey: "ak", SecretKey: "sk",
		Endpoint:      "minio:9000",
		PublicBaseURL: "https://files.example.com/labels/",
	})
	require.NoError(t, err)
	require.Equal(t, "https://files.example.com/labels", st.publicBase)
}

func TestObjectKey(t *testing.T) {
	key := objectKey("SN1.pdf")
	require.True(t, strings.HasPrefix(key, "labels/"))
	require.True(t, strings.HasSuffix(key, "/SN1.pdf"))
	require.Contains(t, key, time.Now().UTC().Format("2006/01"))
}
