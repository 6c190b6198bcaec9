package http

import (
	"net/http"

	"github.com/dkeye/voicelink/internal/app/orch"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch *orch.Orchestrator
}

func (h handlers) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": h.orch.Channels.List()})
}

type membersResponse struct {
	Channel domain.ChannelName `json:"channel"`
	Members []domain.Identity  `json:"members"`
}

func (h handlers) channelMembers(c *gin.Context) {
	name, err := domain.NewChannelName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members, ok := h.orch.ChannelMembers(name)
	if h.orch.Presence != nil {
		shared, err := h.orch.Presence.Members(c.Request.Context(), name)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("channel", string(name)).Msg("presence lookup")
		} else if len(shared) > 0 {
			members, ok = shared, true
		}
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, membersResponse{Channel: name, Members: members})
}
