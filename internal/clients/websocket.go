package clients

import (
	"context"
	"fmt"

	ws "consult-settlement/internal/transport/websocket"
)

// WebSocketClient pushes settlement events to connected operator sessions.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) NotifyPaymentStatus(ctx context.Context, userID int64, paymentID, status string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "payment_status",
		Channel: fmt.Sprintf("settlement_payment_status#%d", userID),
		Data: map[string]interface{}{
			"payment_id": paymentID,
			"status":     status,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) NotifyEscrowFrozen(ctx context.Context, userID int64, paymentID, disputeID, reason string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "escrow_frozen",
		Channel: fmt.Sprintf("settlement_escrow_events#%d", userID),
		Data: map[string]interface{}{
			"payment_id": paymentID,
			"dispute_id": disputeID,
			"reason":     reason,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) NotifyEscrowReleased(ctx context.Context, userID int64, paymentID string, releasedAmount int64, status string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "escrow_released",
		Channel: fmt.Sprintf("settlement_escrow_events#%d", userID),
		Data: map[string]interface{}{
			"payment_id":      paymentID,
			"released_amount": releasedAmount,
			"status":          status,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	userID int64,
	exportID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	message := &ws.Message{
		Type:    "export_progress",
		Channel: fmt.Sprintf("settlement_export_progress#%d", userID),
		Data:    data,
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	userID int64,
	exportID string,
	url string,
	filename string,
) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "export_complete",
		Channel: fmt.Sprintf("settlement_export_complete#%d", userID),
		Data: map[string]interface{}{
			"id":       exportID,
			"url":      url,
			"filename": filename,
			"user_id":  userID,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

// NotifyExportFailed notifies a user that a statement export failed.
func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "export_failed",
		Channel: fmt.Sprintf("settlement_export_failed#%d", userID),
		Data: map[string]interface{}{
			"id":      exportID,
			"message": errMsg,
			"user_id": userID,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}
