package bridgeabi

//nolint:golint
import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed bridge.json
var bridgeJSONABI string

var BridgeABI abi.ABI

// Canonical event signatures, in the form returned by abi.Event.String().
const (
	BridgeRequested     = "event BridgeRequested(bytes32 indexed bridgeId, bytes32 indexed assetId, address indexed sender, address recipient, uint256 amount, uint256 toChainId, uint256 fee)"
	BridgeFulfilled     = "event BridgeFulfilled(bytes32 indexed bridgeId, bytes32 indexed assetId, address indexed recipient, uint256 fulfilledAmount, uint256 requestedAmount, uint256 fromChainId)"
	PartialFillRefunded = "event PartialFillRefunded(bytes32 indexed bridgeId, bytes32 indexed assetId, address indexed sender, uint256 fulfilledAmount, uint256 refundAmount, uint256 refundFee)"
)

func init() {
	var err error
	BridgeABI, err = abi.JSON(strings.NewReader(bridgeJSONABI))
	if err != nil {
		panic(err)
	}
}
