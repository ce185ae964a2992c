package api

import (
	"time"

	"github.com/sats-staker/internal/service"
	"github.com/sats-staker/internal/types"
	"github.com/sats-staker/internal/units"
	"github.com/sats-staker/internal/wallet"
)

// SnapshotResponse is a snapshot with amounts rendered in display units
type SnapshotResponse struct {
	StakedAmount     string           `json:"stakedAmount"`
	StakedAt         int64            `json:"stakedAt"`
	AvailableRewards string           `json:"availableRewards"`
	WalletBalance    string           `json:"walletBalance"`
	RewardRate       types.RewardRate `json:"rewardRate"`
	TotalStaked      string           `json:"totalStaked"`
	RewardPool       string           `json:"rewardPool"`
	MinStakePeriod   int64            `json:"minStakePeriod"`
	FetchedAt        time.Time        `json:"fetchedAt"`
	DefaultedFields  []string         `json:"defaultedFields,omitempty"`
}

// StakerResponse is the dashboard view of one address
type StakerResponse struct {
	Address       string              `json:"address"`
	ShortAddress  string              `json:"shortAddress"`
	Snapshot      SnapshotResponse    `json:"snapshot"`
	Derived       service.Derived     `json:"derived"`
	Stale         bool                `json:"stale"`
	LastError     *types.ServiceError `json:"lastError,omitempty"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	PendingAction string              `json:"pendingAction,omitempty"`
}

// ProjectionsResponse holds the projections of one address
type ProjectionsResponse struct {
	Address string                    `json:"address"`
	Stale   bool                      `json:"stale"`
	Series  []*types.ProjectionSeries `json:"series"`
}

// ActionResponse renders an action record
type ActionResponse struct {
	ID           string              `json:"id"`
	Kind         types.ActionKind    `json:"kind"`
	Address      string              `json:"address"`
	Amount       string              `json:"amount"`
	AmountAtomic types.Amount        `json:"amountAtomic"`
	Status       types.ActionStatus  `json:"status"`
	TxID         string              `json:"txId,omitempty"`
	Error        *types.ServiceError `json:"error,omitempty"`
	SubmittedAt  time.Time           `json:"submittedAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
}

func formatAmount(a types.Amount) string {
	return units.FormatDisplay(a, units.DisplayDecimals)
}

func newSnapshotResponse(snap *types.StakeSnapshot) SnapshotResponse {
	return SnapshotResponse{
		StakedAmount:     formatAmount(snap.StakedAmount),
		StakedAt:         snap.StakedAt,
		AvailableRewards: formatAmount(snap.AvailableRewards),
		WalletBalance:    formatAmount(snap.WalletBalance),
		RewardRate:       snap.RewardRate,
		TotalStaked:      formatAmount(snap.TotalStaked),
		RewardPool:       formatAmount(snap.RewardPool),
		MinStakePeriod:   snap.MinStakePeriod,
		FetchedAt:        snap.FetchedAt,
		DefaultedFields:  snap.DefaultedFields,
	}
}

func newStakerResponse(address string, view *service.StakeView) *StakerResponse {
	return &StakerResponse{
		Address:      address,
		ShortAddress: wallet.ShortAddress(address),
		Snapshot:     newSnapshotResponse(view.Snapshot),
		Derived:      view.Derived(),
		Stale:        view.Stale,
		LastError:    serviceErrorOf(view.LastError),
		UpdatedAt:    view.UpdatedAt,
	}
}

func newActionResponse(record *service.ActionRecord) *ActionResponse {
	return &ActionResponse{
		ID:           record.ID,
		Kind:         record.Kind,
		Address:      record.Address,
		Amount:       formatAmount(record.Amount),
		AmountAtomic: record.Amount,
		Status:       record.Status,
		TxID:         record.TxID,
		Error:        serviceErrorOf(record.Err),
		SubmittedAt:  record.SubmittedAt,
		CompletedAt:  record.CompletedAt,
	}
}
