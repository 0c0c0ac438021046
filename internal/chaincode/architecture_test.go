package chaincode

import (
	"testing"

	"pharmanet/testutil"
)

// The contract runs inside a peer against the world state only; off-chain
// sinks and report tooling belong to the local platform.
func TestContractStaysOffPlatformDependencies(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "pharmanet/internal/chaincode", testutil.Under(
		"pharmanet/internal/platform",
		"pharmanet/internal/report",
		"pharmanet/internal/blob",
		"github.com/go-redis/redis/v8",
		"github.com/eclipse/paho.mqtt.golang",
		"github.com/aws/aws-sdk-go-v2",
		"github.com/xuri/excelize/v2",
	), "chaincode must not reach off-chain infrastructure")
}
