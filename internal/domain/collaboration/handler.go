package collaboration

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"estatecollab/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Propose opens a collaboration on another user's post.
// @Summary		Propose a collaboration
// @Description	The caller becomes the collaborator; the owner is resolved from the post. Only one open collaboration may exist per post.
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		request	body	ProposeRequest	true	"Proposal"
// @Success		201	{object}	CollaborationResponse
// @Failure		400	{object}	map[string]interface{} "Validation error or own post"
// @Failure		404	{object}	map[string]interface{} "Post not found"
// @Failure		409	{object}	map[string]interface{} "A collaboration is already open on this post"
// @Router		/collaborations [POST]
func (h *Handler) Propose(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.Propose(c.Request.Context(), ProposeInput{
		OwnerID:        req.OwnerID,
		CollaboratorID: userID,
		Post:           req.Post,
		Compensation: Compensation{
			Type:       req.Compensation.Type,
			Amount:     req.Compensation.Amount,
			Percentage: req.Compensation.Percentage,
		},
		ProposedCommission: req.ProposedCommission,
		Message:            req.Message,
		ContractText:       req.ContractText,
	})
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, h.render(collab, userID))
}

// List returns the caller's collaborations.
// @Summary		List my collaborations
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		status	query	string	false	"Filter by status"
// @Success		200	{array}	CollaborationResponse
// @Router		/collaborations [GET]
func (h *Handler) List(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	items, err := h.service.ListForUser(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	out := make([]*CollaborationResponse, 0, len(items))
	for i := range items {
		out = append(out, h.render(&items[i], userID))
	}
	response.Success(c, http.StatusOK, gin.H{"collaborations": out})
}

// Get returns one collaboration with its steps and signatures.
// @Summary		Get a collaboration
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id	path	string	true	"Collaboration ID"
// @Success		200	{object}	CollaborationResponse
// @Failure		403	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/collaborations/{id} [GET]
func (h *Handler) Get(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	collab, err := h.service.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// Activities returns the activity log, newest first.
// @Summary		Collaboration activity log
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string	true	"Collaboration ID"
// @Param		limit	query	int		false	"Maximum entries (default 50)"
// @Success		200	{array}	ActivityResponse
// @Router		/collaborations/{id}/activities [GET]
func (h *Handler) Activities(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	limit := 50
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	items, err := h.service.Activities(c.Request.Context(), c.Param("id"), userID, limit)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	out := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, ActivityResponse{ID: a.ID, Type: a.Type, Content: a.Content, CreatedBy: a.CreatedBy, CreatedAt: a.CreatedAt})
	}
	response.Success(c, http.StatusOK, gin.H{"activities": out})
}

// Respond accepts or rejects a pending proposal.
// @Summary		Respond to a proposal
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string			true	"Collaboration ID"
// @Param		request	body	RespondRequest	true	"accepted or rejected"
// @Success		200	{object}	CollaborationResponse
// @Failure		403	{object}	map[string]interface{} "Only the owner can respond"
// @Failure		409	{object}	map[string]interface{} "Proposal is no longer pending"
// @Router		/collaborations/{id}/respond [POST]
func (h *Handler) Respond(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.Respond(c.Request.Context(), c.Param("id"), userID, req.Decision)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// Activate moves an accepted collaboration to active.
// @Summary		Activate a collaboration
// @Description	Requires both parties to have signed the current contract version.
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id	path	string	true	"Collaboration ID"
// @Success		200	{object}	CollaborationResponse
// @Failure		409	{object}	map[string]interface{} "Contract not signed or wrong status"
// @Router		/collaborations/{id}/activate [POST]
func (h *Handler) Activate(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	collab, err := h.service.RequestActivation(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// Terminate closes an active collaboration.
// @Summary		Complete or cancel a collaboration
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string				true	"Collaboration ID"
// @Param		request	body	TerminateRequest	true	"completed or cancelled"
// @Success		200	{object}	CollaborationResponse
// @Router		/collaborations/{id}/terminate [POST]
func (h *Handler) Terminate(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.Terminate(c.Request.Context(), c.Param("id"), userID, req.Outcome)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// UpdateStatus is the generic status endpoint.
// @Summary		Change collaboration status
// @Description	Dispatches to respond, activate or terminate. Unknown statuses are rejected.
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string				true	"Collaboration ID"
// @Param		request	body	UpdateStatusRequest	true	"Target status"
// @Success		200	{object}	CollaborationResponse
// @Failure		409	{object}	map[string]interface{}
// @Router		/collaborations/{id}/status [PATCH]
func (h *Handler) UpdateStatus(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), userID, req.Status)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// UpdateContract replaces the contract text and resets both signatures.
// @Summary		Edit the contract
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string					true	"Collaboration ID"
// @Param		request	body	UpdateContractRequest	true	"New contract text"
// @Success		200	{object}	CollaborationResponse
// @Router		/collaborations/{id}/contract [PUT]
func (h *Handler) UpdateContract(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req UpdateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.UpdateContract(c.Request.Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// Sign signs the current contract version.
// @Summary		Sign the contract
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id	path	string	true	"Collaboration ID"
// @Success		200	{object}	SignResponse
// @Router		/collaborations/{id}/contract/sign [POST]
func (h *Handler) Sign(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	collab, fullySigned, err := h.service.Sign(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, SignResponse{Collaboration: h.render(collab, userID), FullySigned: fullySigned})
}

// ValidateStep records the caller's validation of a progress step.
// @Summary		Validate a progress step
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string				true	"Collaboration ID"
// @Param		step	path	string				true	"Step key"
// @Param		request	body	ValidateStepRequest	false	"Optional note"
// @Success		200	{object}	CollaborationResponse
// @Failure		409	{object}	map[string]interface{} "Not active or awaiting re-signature"
// @Router		/collaborations/{id}/steps/{step}/validate [POST]
func (h *Handler) ValidateStep(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req ValidateStepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}

	collab, err := h.service.ValidateStep(c.Request.Context(), c.Param("id"), userID, c.Param("step"), req.Note)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.render(collab, userID))
}

// AddNote adds a note to a step or to the activity log.
// @Summary		Add a note
// @Tags		Collaborations
// @Security	BearerAuth
// @Param		id		path	string			true	"Collaboration ID"
// @Param		request	body	AddNoteRequest	true	"Note"
// @Success		201	{object}	CollaborationResponse
// @Router		/collaborations/{id}/notes [POST]
func (h *Handler) AddNote(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	collab, err := h.service.AddNote(c.Request.Context(), c.Param("id"), userID, req.Content, req.StepKey)
	if err != nil {
		handleCollaborationError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, h.render(collab, userID))
}

// ProgressSteps lists the configured step order.
// @Summary		Progress step catalogue
// @Tags		Collaborations
// @Success		200	{array}	StepCatalogEntry
// @Router		/progress-steps [GET]
func (h *Handler) ProgressSteps(c *gin.Context) {
	steps := h.service.Steps()
	keys := steps.Keys()
	out := make([]StepCatalogEntry, 0, len(keys))
	for i, k := range keys {
		out = append(out, StepCatalogEntry{Key: k, Label: steps.Label(k), Position: i})
	}
	response.Success(c, http.StatusOK, gin.H{"steps": out})
}

func (h *Handler) render(c *Collaboration, viewerID int64) *CollaborationResponse {
	return NewCollaborationResponse(c, viewerID, h.service.Steps().Label)
}

func handleCollaborationError(c *gin.Context, err error) {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		log.Printf("collab_request_failed path=%s err=%v", c.FullPath(), err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Collaboration request failed")
		return
	}

	status := http.StatusBadRequest
	switch domainErr.Code {
	case CodeForbidden:
		status = http.StatusForbidden
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeInvalidTransition, CodeContractNotSigned, CodeNotActive, CodeDuplicateProposal:
		status = http.StatusConflict
	case CodeInvalidActor, CodeValidation:
		status = http.StatusBadRequest
	}
	response.Error(c, status, string(domainErr.Code), domainErr.Message)
}
