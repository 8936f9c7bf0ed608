// Package network defines the messages exchanged between a session and the
// authority: a {type, payload} envelope carried as JSON over a websocket.
package network

import (
	"encoding/json"
	"fmt"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/pkg/models"
)

// Message types - Client → Server
const (
	MsgTypeJoin   = "join"
	MsgTypeLeave  = "leave"
	MsgTypePing   = "ping"
	MsgTypeMove   = "move"
	MsgTypeResync = "resync"

	// Requests that the authority confirms or denies.
	MsgTypeDropRequest     = "drop_request"
	MsgTypePickupRequest   = "pickup_request"
	MsgTypeBuyRequest      = "buy_request"
	MsgTypeSellRequest     = "sell_request"
	MsgTypeDepositRequest  = "deposit_request"
	MsgTypeWithdrawRequest = "withdraw_request"

	// Local rearrangements mirrored to the authority's copy.
	MsgTypeSwap    = "swap"
	MsgTypeCombine = "combine"
	MsgTypeUse     = "use"
)

// Message types - Server → Client
const (
	MsgTypeWelcome      = "welcome"
	MsgTypePlayerJoined = "player_joined"
	MsgTypePlayerLeft   = "player_left"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"

	MsgTypeInventoryState = "inventory_state"
	MsgTypeBankState      = "bank_state"
	MsgTypeShopState      = "shop_state"
	MsgTypeShopUpdate     = "shop_update"
	MsgTypeFloorState     = "floor_state"
	MsgTypeFloorUpsert    = "floor_item_upsert"
	MsgTypeFloorRemoved   = "floor_item_removed"

	MsgTypeDropConfirmed     = "drop_confirmed"
	MsgTypePickupConfirmed   = "pickup_confirmed"
	MsgTypeBuyConfirmed      = "buy_confirmed"
	MsgTypeSellConfirmed     = "sell_confirmed"
	MsgTypeDepositConfirmed  = "deposit_confirmed"
	MsgTypeWithdrawConfirmed = "withdraw_confirmed"
	MsgTypeDenied            = "denied"
)

// Denial codes.
const (
	CodeInvalid           = "invalid"
	CodeNotFound          = "not_found"
	CodeTaken             = "taken"
	CodeOutOfRange        = "out_of_range"
	CodeNoSpace           = "no_space"
	CodeInsufficientFunds = "insufficient_funds"
	CodeInsufficientStock = "insufficient_stock"
	CodeInsufficientItems = "insufficient_items"
	CodeNotAccepted       = "not_accepted"
	CodeNotedItem         = "noted_item"
	CodeNotAuthenticated  = "not_authenticated"
	CodeUnknownType       = "unknown_message_type"
)

// Envelope is a decoded message whose payload is still raw.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is an outbound message with a typed payload.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode marshals a message.
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return data, nil
}

// Decode parses an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Into unmarshals the payload into v.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", e.Type, err)
	}
	return nil
}

// --- Client Message Payloads ---

// MovePayload reports the player's tile.
type MovePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DropRequest asks to drop quantity units from an inventory slot at the
// player's tile.
type DropRequest struct {
	RequestID string `json:"request_id"`
	Slot      int    `json:"slot"`
	Quantity  int    `json:"quantity"`
}

// PickupRequest asks to pick up a floor item.
type PickupRequest struct {
	RequestID   string `json:"request_id"`
	FloorItemID string `json:"floor_item_id"`
}

// BuyRequest asks to buy from a shop.
type BuyRequest struct {
	RequestID string `json:"request_id"`
	ShopID    string `json:"shop_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
}

// SellRequest asks to sell plain units of an item to a shop.
type SellRequest struct {
	RequestID string `json:"request_id"`
	ShopID    string `json:"shop_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
}

// DepositRequest asks to move units from an inventory slot into the bank.
type DepositRequest struct {
	RequestID string `json:"request_id"`
	Slot      int    `json:"slot"`
	Quantity  int    `json:"quantity"`
	Tab       int    `json:"tab"`
}

// WithdrawRequest asks to move units from a bank slot into the inventory.
type WithdrawRequest struct {
	RequestID string `json:"request_id"`
	Storage   int    `json:"storage"`
	Slot      int    `json:"slot"`
	Quantity  int    `json:"quantity"`
	AsNote    bool   `json:"as_note,omitempty"`
}

// SwapPayload mirrors a slot swap.
type SwapPayload struct {
	A int `json:"a"`
	B int `json:"b"`
}

// CombinePayload mirrors combining two slots.
type CombinePayload struct {
	First  int `json:"first"`
	Second int `json:"second"`
}

// UsePayload mirrors using the item in a slot.
type UsePayload struct {
	Slot int `json:"slot"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}

// PlayerJoinedPayload notifies clients when a player joins
type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// PlayerLeftPayload notifies clients when a player leaves
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// InventoryState replaces the client's inventory wholesale.
type InventoryState struct {
	Slots     []*models.ItemStack         `json:"slots"`
	Equipment map[string]models.ItemStack `json:"equipment,omitempty"`
}

// BankState replaces the client's bank wholesale.
type BankState struct {
	Bank inventory.BankSnapshot `json:"bank"`
}

// ShopState replaces every shop's stock.
type ShopState struct {
	Shops map[string]models.ShopStock `json:"shops"`
}

// ShopUpdate replaces one shop's stock.
type ShopUpdate struct {
	ShopID string           `json:"shop_id"`
	Stock  models.ShopStock `json:"stock"`
}

// FloorState replaces every floor item.
type FloorState struct {
	Items []models.FloorItem `json:"items"`
}

// FloorUpsert creates or updates one floor item.
type FloorUpsert struct {
	Item models.FloorItem `json:"item"`
}

// FloorRemoved removes one floor item.
type FloorRemoved struct {
	ID string `json:"id"`
}

// DropConfirmed carries the floor entry the authority created or grew.
type DropConfirmed struct {
	RequestID string           `json:"request_id"`
	Slot      int              `json:"slot"`
	Quantity  int              `json:"quantity"`
	Item      models.FloorItem `json:"item"`
}

// PickupConfirmed carries the floor entry that was taken.
type PickupConfirmed struct {
	RequestID string           `json:"request_id"`
	Item      models.FloorItem `json:"item"`
}

// TradeConfirmed confirms a buy or sell at the authority's price.
type TradeConfirmed struct {
	RequestID string `json:"request_id"`
	ShopID    string `json:"shop_id"`
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
	// SoldAt is the authority's sale time in unix milliseconds.
	SoldAt int64 `json:"sold_at,omitempty"`
}

// DepositConfirmed confirms a deposit; Moved is the number of units banked.
type DepositConfirmed struct {
	RequestID string `json:"request_id"`
	Slot      int    `json:"slot"`
	Quantity  int    `json:"quantity"`
	Tab       int    `json:"tab"`
	Moved     int    `json:"moved"`
}

// WithdrawConfirmed confirms a withdrawal; Moved is the number of units
// taken out.
type WithdrawConfirmed struct {
	RequestID string `json:"request_id"`
	Storage   int    `json:"storage"`
	Slot      int    `json:"slot"`
	Quantity  int    `json:"quantity"`
	AsNote    bool   `json:"as_note,omitempty"`
	Moved     int    `json:"moved"`
}

// Denied rejects a request. Actor names a conflicting player when known.
type Denied struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
