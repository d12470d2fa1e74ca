package workflow

import (
	"context"

	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/transport"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/requestcontext"
)

// HandleAnnouncement reacts to a counterparty's committed transaction. Own
// announcements are ignored. When the conveyancer announces a pending
// issuance request and this node is the title issuer, issuance runs
// immediately instead of waiting for an operator call.
func (s *Service) HandleAnnouncement(ctx context.Context, msg transport.Message) {
	if msg.Sender == s.party {
		return
	}

	outputs, err := s.store.Outputs(ctx, msg.TxID)
	if err != nil {
		s.logger.WarnContext(ctx, "counterparty transaction not resolvable",
			"tx_id", msg.TxID, "procedure", msg.Procedure, "error", err)
		return
	}

	kinds := make([]record.Kind, 0, len(outputs))
	for _, out := range outputs {
		kinds = append(kinds, out.State.Kind())
	}
	s.logger.InfoContext(ctx, "counterparty transaction observed",
		"tx_id", msg.TxID, "procedure", msg.Procedure, "sender", msg.Sender, "kinds", kinds)

	if msg.Procedure != string(rules.CmdRequestIssuance) {
		return
	}
	for _, out := range outputs {
		request, ok := out.State.(record.IssuanceRequest)
		if !ok || request.Status != record.RequestPending || request.TitleIssuer != s.party {
			continue
		}
		issueCtx := requestcontext.WithParty(ctx, s.party)
		resolved, err := s.IssueTitle(issueCtx, request.ID)
		if err != nil {
			// A conflict means another worker got there first.
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				continue
			}
			s.logger.ErrorContext(ctx, "issuance from announcement failed",
				"request_id", request.ID, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "issuance request resolved",
			"request_id", request.ID, "status", resolved.Record.Status)
	}
}
