package web_service

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/elikakv/client/pkg/cluster"
)

const (
	ClusterNodesPath = "/cluster/nodes"
	SlotMapRouterKey = "SlotMapRouter"
)

// GlobalSlotMapRouter injects the shared SlotMapRouter that both the
// cluster-aware gateway and this package's admin handlers operate on, the
// same pattern GlobalBackendManager/GlobalClusterRegistry use for the
// sync-router handlers.
func GlobalSlotMapRouter(router *cluster.SlotMapRouter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(SlotMapRouterKey, router)
		c.Next()
	}
}

// ClusterNodeView is the admin-facing projection of one node's pool state.
type ClusterNodeView struct {
	Addr           string `json:"addr"`
	Role           string `json:"role"`
	InUse          int    `json:"inUse"`
	Idle           int    `json:"idle"`
	FailedAttempts uint32 `json:"failedAttempts"`
	Frozen         bool   `json:"frozen"`
	FreezeReason   string `json:"freezeReason,omitempty"`
}

var _ WebHandler = (*ListClusterNodesHandler)(nil)

type ListClusterNodesHandler struct{}

func (h *ListClusterNodesHandler) Path() string       { return ClusterNodesPath }
func (h *ListClusterNodesHandler) Method() HttpMethod { return GET }

func (h *ListClusterNodesHandler) Handler(ctx *gin.Context) {
	object, _ := ctx.Get(SlotMapRouterKey)
	router := object.(*cluster.SlotMapRouter)

	views := make([]ClusterNodeView, 0)
	for _, pool := range router.Shards() {
		for _, stats := range pool.Snapshot() {
			view := ClusterNodeView{
				Addr:           stats.Addr,
				Role:           stats.Role.String(),
				InUse:          stats.InUse,
				Idle:           stats.Idle,
				FailedAttempts: stats.FailedAttempts,
				Frozen:         stats.Frozen,
			}
			if stats.Frozen {
				view.FreezeReason = freezeReasonName(stats.FreezeReason)
			}
			views = append(views, view)
		}
	}
	ctx.JSON(http.StatusOK, ApiResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data:    views,
	})
}

func freezeReasonName(r cluster.FreezeReason) string {
	switch r {
	case cluster.FreezeSystemShutdown:
		return "system-shutdown"
	case cluster.FreezeReconnect:
		return "reconnect"
	case cluster.FreezeManual:
		return "manual"
	default:
		return "none"
	}
}

// AddClusterNodeRequest is the admin API's manual substitute for
// CLUSTER SLOTS polling: an operator (or a real topology manager, external
// to this repository) pushes one shard's current ownership directly.
type AddClusterNodeRequest struct {
	SlotStart int      `json:"slotStart" binding:"required"`
	SlotEnd   int      `json:"slotEnd" binding:"required"`
	Master    string   `json:"master" binding:"required"`
	Replicas  []string `json:"replicas"`
}

var _ WebHandler = (*AddClusterNodeHandler)(nil)

type AddClusterNodeHandler struct{}

func (h *AddClusterNodeHandler) Path() string       { return ClusterNodesPath }
func (h *AddClusterNodeHandler) Method() HttpMethod { return POST }

func (h *AddClusterNodeHandler) Handler(ctx *gin.Context) {
	var request AddClusterNodeRequest
	if err := ctx.ShouldBindBodyWithJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, ApiResponse{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return
	}
	object, _ := ctx.Get(SlotMapRouterKey)
	router := object.(*cluster.SlotMapRouter)
	router.UpdateShard(ctx.Request.Context(), cluster.ShardAssignment{
		SlotStart: request.SlotStart,
		SlotEnd:   request.SlotEnd,
		Master:    request.Master,
		Replicas:  request.Replicas,
	})
	logger.Info("cluster node registered", "master", request.Master, "slotStart", request.SlotStart, "slotEnd", request.SlotEnd)
	ctx.JSON(http.StatusOK, ApiResponse{
		Code:    http.StatusOK,
		Message: "shard assignment applied",
	})
}
