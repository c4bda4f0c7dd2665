package traces

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ethagent/internal/logging"
)

func TestInit_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "ethagent-test", "", logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanAndEnd(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "tool.balance", Tool("balance"), Address("0xabc"))
	require.NotNil(t, ctx)
	End(span, errors.New("boom"))
	End(span, nil)
}

func TestAttributeKeys(t *testing.T) {
	assert.Equal(t, "mcp.tool", string(Tool("x").Key))
	assert.Equal(t, "eth.tx_hash", string(TxHash("0x1").Key))
	assert.Equal(t, "llm.model", string(Model("m").Key))
	assert.Equal(t, "search.query", string(Query("uni").Key))
	assert.Equal(t, "1.5", Amount("1.5").Value.AsString())
}
