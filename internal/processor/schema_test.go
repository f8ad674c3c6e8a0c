package processor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAgainstSchemaAcceptsTemplate(t *testing.T) {
	b, err := json.Marshal(NewProfile())
	require.NoError(t, err)
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &obj))

	assert.Empty(t, ValidateAgainstSchema(obj))
}

func TestValidateAgainstSchemaReportsMissingKeys(t *testing.T) {
	errs := ValidateAgainstSchema(mustObj(t, `{"schema_version": "1.0"}`))
	assert.NotEmpty(t, errs)
}

func TestValidateAgainstSchemaReportsBadTypes(t *testing.T) {
	b, _ := json.Marshal(NewProfile())
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &obj))
	obj["skills"] = "Go, SQL"

	errs := ValidateAgainstSchema(obj)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "skills")
}

func TestValidateAgainstSchemaCapsErrorCount(t *testing.T) {
	errs := ValidateAgainstSchema(map[string]interface{}{})
	assert.LessOrEqual(t, len(errs), 20)
}
