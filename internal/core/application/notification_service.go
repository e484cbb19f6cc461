package application

import (
	"context"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

// Notification service has the very simple task of making the event channels
// of the used domain.ProofRepository, domain.TransactionRepository and
// domain.QuoteRepository accessible by external clients so that they can get
// real-time updates on the status of the wallets.
type NotificationService struct {
	repoManager ports.RepoManager
}

func NewNotificationService(
	repoManager ports.RepoManager,
) *NotificationService {
	return &NotificationService{repoManager}
}

func (ns *NotificationService) GetProofChannel(
	ctx context.Context,
) (chan domain.ProofEvent, error) {
	return ns.repoManager.ProofRepository().GetEventChannel(), nil
}

func (ns *NotificationService) GetTxChannel(
	ctx context.Context,
) (chan domain.TransactionEvent, error) {
	return ns.repoManager.TransactionRepository().GetEventChannel(), nil
}

func (ns *NotificationService) GetQuoteChannel(
	ctx context.Context,
) (chan domain.QuoteEvent, error) {
	return ns.repoManager.QuoteRepository().GetEventChannel(), nil
}
