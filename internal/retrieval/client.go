package retrieval

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/config"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

// New selects and constructs the configured retrieval backend: managed
// (a Bedrock knowledge base Retrieve call), manual (embed + blob scan +
// cosine score), or — only when neither is configured AND
// cfg.AllowMockRetrieval is set — the deterministic mock backend
// (spec.md §4.3's explicit development-only affordance).
func New(cfg config.RetrievalConfig, bedrockAgentClient *bedrockagentruntime.Client, embedder modelclient.Embedder, blob store.Blob, logger observe.Logger) Client {
	switch cfg.Backend {
	case "managed":
		return NewManagedBackend(bedrockAgentClient, cfg.KnowledgeBaseID)
	case "manual":
		return NewManualBackend(embedder, blob, cfg.ChunkBlobPrefix, logger)
	default:
		if cfg.AllowMockRetrieval {
			if logger != nil {
				logger.Warn(context.Background(), "retrieval: no backend configured, falling back to mock retrieval — not for production use")
			}
			return MockBackend{}
		}
		return NewManualBackend(embedder, blob, cfg.ChunkBlobPrefix, logger)
	}
}
