package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/agent"
	"github.com/yungbote/kgchat-backend/internal/http/response"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/apierr"
	"github.com/yungbote/kgchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/kgchat-backend/internal/recommend"
	"github.com/yungbote/kgchat-backend/internal/subgraph"
)

// Turner runs one conversation turn.
type Turner interface {
	Handle(ctx context.Context, req agent.Request) (*agent.Result, error)
}

type DataHandler struct {
	agent Turner
}

func NewDataHandler(a Turner) *DataHandler {
	return &DataHandler{agent: a}
}

type dataReq struct {
	InputType      string `json:"input_type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"userId"`
	Data           struct {
		Triples     []wireTriple `json:"triples"`
		RecommendID optionalInt  `json:"recommendId"`
		Response    string       `json:"response"`
	} `json:"data"`
}

type dataResp struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    dataPayload `json:"data"`
}

type dataPayload struct {
	ConversationID  string               `json:"conversation_id"`
	VisRes          *subgraph.Payload    `json:"vis_res"`
	NodeNameMapping map[string]string    `json:"node_name_mapping"`
	Recommendation  []recommend.Item     `json:"recommendation"`
	Unmatched       []string             `json:"unmatched"`
	Incomplete      []kg.Triple          `json:"incomplete"`
	Consumed        *recommend.Candidate `json:"consumed,omitempty"`
	Question        []string             `json:"question"`
}

// POST /api/data
func (h *DataHandler) Data(c *gin.Context) {
	var req dataReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(fmt.Errorf("decode body: %w", err)))
		return
	}
	mode, err := agent.ParseMode(req.InputType)
	if err != nil {
		fail(c, err)
		return
	}

	conv := strings.TrimSpace(req.ConversationID)
	if conv == "" {
		conv = strings.TrimSpace(req.UserID)
	}
	if td := ctxutil.GetTraceData(c.Request.Context()); conv == "" && td != nil {
		conv = td.ConversationID
	}
	ctxutil.SetConversationID(c.Request.Context(), conv)

	res, err := h.agent.Handle(c.Request.Context(), agent.Request{
		Mode:             mode,
		ConversationID:   conv,
		Triples:          toTriples(req.Data.Triples),
		RecommendationID: req.Data.RecommendID.Ptr(),
		Response:         req.Data.Response,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ctxutil.SetConversationID(c.Request.Context(), res.ConversationID)

	response.RespondOK(c, dataResp{
		Status:  "success",
		Message: "ok",
		Data: dataPayload{
			ConversationID:  res.ConversationID,
			VisRes:          res.Payload,
			NodeNameMapping: res.NameMapping,
			Recommendation:  res.Recommendations,
			Unmatched:       res.Unmatched,
			Incomplete:      res.Incomplete,
			Consumed:        res.Consumed,
			Question:        res.Question,
		},
	})
}
