package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// MaxInvokeDepth bounds nested cross-program invocations.
const MaxInvokeDepth = 4

// Program is an on-ledger state machine. Process receives the instruction's
// account list with the privileges granted to it and the raw instruction data.
// Any returned error aborts the whole transaction.
type Program interface {
	ID() solana.PublicKey
	Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error
}

// overlay stages account writes for one transaction attempt. Nothing reaches
// the store until the transaction finishes without error.
type overlay struct {
	ctx    context.Context
	store  domain.AccountStore
	loaded map[solana.PublicKey]domain.Account
	dirty  map[solana.PublicKey]domain.Account
	order  []solana.PublicKey
}

func newOverlay(ctx context.Context, store domain.AccountStore) *overlay {
	return &overlay{
		ctx:    ctx,
		store:  store,
		loaded: make(map[solana.PublicKey]domain.Account),
		dirty:  make(map[solana.PublicKey]domain.Account),
	}
}

// get returns the staged or stored account. ok is false when the account does
// not exist.
func (o *overlay) get(addr solana.PublicKey) (domain.Account, bool, error) {
	if a, ok := o.dirty[addr]; ok {
		return a.Clone(), true, nil
	}
	if a, ok := o.loaded[addr]; ok {
		return a.Clone(), a.Version > 0, nil
	}
	a, err := o.store.Get(o.ctx, addr)
	if errors.Is(err, domain.ErrNotFound) {
		o.loaded[addr] = domain.Account{Address: addr}
		return domain.Account{Address: addr}, false, nil
	}
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("ledger: load %s: %w", addr, err)
	}
	o.loaded[addr] = a
	return a.Clone(), true, nil
}

func (o *overlay) put(acct domain.Account) {
	if _, ok := o.dirty[acct.Address]; !ok {
		o.order = append(o.order, acct.Address)
	}
	o.dirty[acct.Address] = acct
}

// writes turns the staged accounts into version-checked store writes.
func (o *overlay) writes(now time.Time) []domain.AccountWrite {
	out := make([]domain.AccountWrite, 0, len(o.order))
	for _, addr := range o.order {
		expected := o.loaded[addr].Version
		acct := o.dirty[addr]
		acct.Version = expected + 1
		acct.UpdatedAt = now
		out = append(out, domain.AccountWrite{Account: acct, ExpectedVersion: expected})
	}
	return out
}

// execution is the state of one transaction attempt.
type execution struct {
	ledger *Ledger
	ov     *overlay
	now    time.Time
	events []domain.Event
	logs   []string
}

func (e *execution) invoke(programID solana.PublicKey, accounts []*solana.AccountMeta, data []byte, depth int) error {
	prog, ok := e.ledger.program(programID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	ic := &InvokeContext{
		exec:      e,
		programID: programID,
		signers:   make(map[solana.PublicKey]bool),
		writable:  make(map[solana.PublicKey]bool),
		depth:     depth,
	}
	for _, m := range accounts {
		if m.IsSigner {
			ic.signers[m.PublicKey] = true
		}
		if m.IsWritable {
			ic.writable[m.PublicKey] = true
		}
	}
	return prog.Process(ic, accounts, data)
}

// InvokeContext is a program's view of the ledger while it processes one
// instruction. Privileges are scoped to the instruction's account list.
type InvokeContext struct {
	exec      *execution
	programID solana.PublicKey
	signers   map[solana.PublicKey]bool
	writable  map[solana.PublicKey]bool
	depth     int
}

// ProgramID returns the id of the executing program.
func (ic *InvokeContext) ProgramID() solana.PublicKey { return ic.programID }

// Now returns the ledger clock reading taken when the transaction started.
func (ic *InvokeContext) Now() time.Time { return ic.exec.now }

// Context returns the submission context.
func (ic *InvokeContext) Context() context.Context { return ic.exec.ov.ctx }

// IsSigner reports whether addr signed for this instruction, either through a
// transaction signature or a derivation proof from the calling program.
func (ic *InvokeContext) IsSigner(addr solana.PublicKey) bool { return ic.signers[addr] }

// IsWritable reports whether this instruction may write addr.
func (ic *InvokeContext) IsWritable(addr solana.PublicKey) bool { return ic.writable[addr] }

// Load returns the current state of addr, including writes staged earlier in
// the same transaction. It fails with ErrAccountNotFound when the account does
// not exist.
func (ic *InvokeContext) Load(addr solana.PublicKey) (domain.Account, error) {
	a, ok, err := ic.exec.ov.get(addr)
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return a, nil
}

// Exists reports whether addr holds an account.
func (ic *InvokeContext) Exists(addr solana.PublicKey) (bool, error) {
	_, ok, err := ic.exec.ov.get(addr)
	return ok, err
}

// Create allocates a new account owned by the executing program. The caller
// must either hold a signature for addr or present seeds that derive addr
// under the executing program.
func (ic *InvokeContext) Create(addr solana.PublicKey, data []byte, seeds [][]byte) error {
	if !ic.writable[addr] {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, addr)
	}
	if !ic.signers[addr] {
		if len(seeds) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingSigner, addr)
		}
		derived, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil || !derived.Equals(addr) {
			return fmt.Errorf("%w: seeds do not derive %s", ErrMissingSigner, addr)
		}
	}
	_, exists, err := ic.exec.ov.get(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	ic.exec.ov.put(domain.Account{
		Address: addr,
		Owner:   ic.programID,
		Data:    append([]byte(nil), data...),
	})
	return nil
}

// Store replaces the data of an existing account owned by the executing
// program.
func (ic *InvokeContext) Store(addr solana.PublicKey, data []byte) error {
	if !ic.writable[addr] {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, addr)
	}
	a, ok, err := ic.exec.ov.get(addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if !a.Owner.Equals(ic.programID) {
		return fmt.Errorf("%w: %s", ErrAccountNotOwned, addr)
	}
	a.Data = append([]byte(nil), data...)
	ic.exec.ov.put(a)
	return nil
}

// Emit queues an event. Events are published only if the transaction commits.
func (ic *InvokeContext) Emit(eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ledger: marshal %s event: %w", eventType, err)
	}
	ic.exec.events = append(ic.exec.events, domain.Event{
		Type:    eventType,
		Payload: raw,
		Time:    ic.exec.now,
	})
	return nil
}

// Log appends a line to the transaction's program log.
func (ic *InvokeContext) Log(format string, args ...any) {
	ic.exec.logs = append(ic.exec.logs, fmt.Sprintf("program %s: %s", ic.programID, fmt.Sprintf(format, args...)))
}

// Invoke calls another program. An account may be passed as signer only if it
// signed for the current instruction or is derived from one of signerSeeds
// under the executing program, and as writable only if it is writable here.
func (ic *InvokeContext) Invoke(programID solana.PublicKey, accounts []*solana.AccountMeta, data []byte, signerSeeds ...[][]byte) error {
	if ic.depth+1 > MaxInvokeDepth {
		return ErrCallDepth
	}
	derived := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return fmt.Errorf("%w: bad signer seeds: %v", ErrPrivilegeEscalation, err)
		}
		derived[addr] = true
	}
	for _, m := range accounts {
		if m.IsSigner && !ic.signers[m.PublicKey] && !derived[m.PublicKey] {
			return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, m.PublicKey)
		}
		if m.IsWritable && !ic.writable[m.PublicKey] {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, m.PublicKey)
		}
	}
	return ic.exec.invoke(programID, accounts, data, ic.depth+1)
}
