// internal/engine/checkers.go
package engine

import (
	"encoding/json"
	"time"
)

// checkers is 8x8 draughts. Men move diagonally forward one square and
// capture by jumping; kings move and capture in all four diagonal
// directions. Multi-captures are submitted as one move per jump: after a
// capturing move that can continue, the turn does not pass (AdvanceTurn
// override) and the next move must continue the chain.
type checkers struct {
	base
	forcedCapture bool
	drawLimit     int
}

const checkersSize = 8

// Cell contents.
const (
	ckEmpty = iota
	ckMan1
	ckMan2
	ckKing1
	ckKing2
)

type checkersBoard struct {
	Cells []int `json:"cells"`

	// ChainFrom points at the piece that must continue capturing, nil
	// when no chain is pending.
	ChainFrom *[2]int `json:"chain_from,omitempty"`

	// NoCapturePlies counts successive moves without a capture for the
	// draw rule.
	NoCapturePlies int `json:"no_capture_plies"`
}

func checkersMeta() Meta {
	rules := []RuleSpec{
		{Name: "forced_capture", Type: RuleBool, Default: false, Description: "whether an available capture must be taken"},
		{Name: "draw_move_limit", Type: RuleInt, Min: 40, Max: 200, Default: 120, Description: "plies without a capture before the game is drawn"},
	}
	return Meta{
		Name:        "checkers",
		DisplayName: "Checkers",
		MinPlayers:  2,
		MaxPlayers:  2,
		Rules:       append(rules, timingRules(PolicyEndGame)...),
	}
}

func newCheckers(cfg Config) (Engine, error) {
	b, err := newBase(checkersMeta(), cfg)
	if err != nil {
		return nil, err
	}
	return &checkers{
		base:          b,
		forcedCapture: b.boolRule("forced_capture"),
		drawLimit:     b.intRule("draw_move_limit"),
	}, nil
}

// InitialState places twelve men per side on the dark squares; player 1
// advances toward higher rows, player 2 toward lower ones.
func (e *checkers) InitialState(now time.Time) (*State, error) {
	board := checkersBoard{Cells: make([]int, checkersSize*checkersSize)}
	for r := 0; r < checkersSize; r++ {
		for c := 0; c < checkersSize; c++ {
			if (r+c)%2 != 1 {
				continue
			}
			switch {
			case r < 3:
				board.Cells[r*checkersSize+c] = ckMan1
			case r > 4:
				board.Cells[r*checkersSize+c] = ckMan2
			}
		}
	}
	return e.newState(board, now)
}

func (e *checkers) ValidateMove(st *State, playerID string, move json.RawMessage) Verdict {
	if v := guardMove(st, playerID); !v.Valid {
		return v
	}
	mv, err := decodeClobberMove(move) // same {from, to} shape
	if err != nil {
		return Deny("malformed move: %v", err)
	}
	var board checkersBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return Deny("corrupt board state")
	}
	fr, fc, tr, tc := *mv.From.Row, *mv.From.Col, *mv.To.Row, *mv.To.Col
	if !ckInBounds(fr, fc) || !ckInBounds(tr, tc) {
		return Deny("move is off the board")
	}
	player := st.PlayerIndex(playerID) + 1
	piece := board.at(fr, fc)
	if ckOwner(piece) != player {
		return Deny("no piece of yours at (%d,%d)", fr, fc)
	}
	if board.at(tr, tc) != ckEmpty {
		return Deny("destination (%d,%d) is occupied", tr, tc)
	}
	if board.ChainFrom != nil {
		if board.ChainFrom[0] != fr || board.ChainFrom[1] != fc {
			return Deny("must continue the capture chain from (%d,%d)", board.ChainFrom[0], board.ChainFrom[1])
		}
		if !ckIsCapture(fr, fc, tr, tc) {
			return Deny("chained move must be another capture")
		}
	}
	dr, dc := tr-fr, tc-fc
	switch {
	case abs(dr) == 1 && abs(dc) == 1:
		if e.forcedCapture && board.hasCapture(player) {
			return Deny("a capture is available and must be taken")
		}
		if !ckDirectionOK(piece, dr) {
			return Deny("men cannot move backwards")
		}
	case abs(dr) == 2 && abs(dc) == 2:
		if !ckDirectionOK(piece, dr) {
			return Deny("men cannot capture backwards")
		}
		mid := board.at(fr+dr/2, fc+dc/2)
		if mid == ckEmpty || ckOwner(mid) == player {
			return Deny("capture requires an opposing piece at (%d,%d)", fr+dr/2, fc+dc/2)
		}
	default:
		return Deny("moves are diagonal by one square, captures by two")
	}
	return Allow()
}

func (e *checkers) ApplyMove(st *State, playerID string, move json.RawMessage, now time.Time) error {
	mv, err := decodeClobberMove(move)
	if err != nil {
		return err
	}
	var board checkersBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return err
	}
	fr, fc, tr, tc := *mv.From.Row, *mv.From.Col, *mv.To.Row, *mv.To.Col
	piece := board.at(fr, fc)
	board.set(fr, fc, ckEmpty)

	captured := ckIsCapture(fr, fc, tr, tc)
	if captured {
		board.set(fr+(tr-fr)/2, fc+(tc-fc)/2, ckEmpty)
		board.NoCapturePlies = 0
	} else {
		board.NoCapturePlies++
	}

	promoted := false
	if piece == ckMan1 && tr == checkersSize-1 {
		piece, promoted = ckKing1, true
	} else if piece == ckMan2 && tr == 0 {
		piece, promoted = ckKing2, true
	}
	board.set(tr, tc, piece)

	// Promotion ends a chain; otherwise a continuing capture keeps the
	// turn with this piece.
	board.ChainFrom = nil
	if captured && !promoted && board.canCaptureFrom(tr, tc) {
		board.ChainFrom = &[2]int{tr, tc}
	}

	raw, err := json.Marshal(board)
	if err != nil {
		return err
	}
	st.Board = raw
	recordMove(st, playerID, move, now)
	return nil
}

// AdvanceTurn keeps the turn with the mover while a capture chain is
// pending.
func (e *checkers) AdvanceTurn(st *State) {
	var board checkersBoard
	if err := json.Unmarshal(st.Board, &board); err == nil && board.ChainFrom != nil {
		return
	}
	e.base.AdvanceTurn(st)
}

func (e *checkers) CheckResult(st *State) (Result, string) {
	var board checkersBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return st.Result, st.WinnerID
	}
	if board.NoCapturePlies >= e.drawLimit {
		return ResultDraw, ""
	}
	toAct := nextToAct(st)
	if board.ChainFrom != nil && st.LastMove != nil {
		// the mover continues their chain
		toAct = st.PlayerIndex(st.LastMove.PlayerID)
	}
	if !board.hasAnyMove(toAct + 1) {
		return ResultPlayerWin, winnerAgainst(st, toAct)
	}
	return ResultInProgress, ""
}

func ckInBounds(r, c int) bool {
	return r >= 0 && r < checkersSize && c >= 0 && c < checkersSize
}

func ckOwner(piece int) int {
	switch piece {
	case ckMan1, ckKing1:
		return 1
	case ckMan2, ckKing2:
		return 2
	}
	return 0
}

func ckIsKing(piece int) bool { return piece == ckKing1 || piece == ckKing2 }

// ckDirectionOK verifies forward motion for men; kings go both ways.
func ckDirectionOK(piece, dr int) bool {
	if ckIsKing(piece) {
		return true
	}
	if piece == ckMan1 {
		return dr > 0
	}
	return dr < 0
}

func ckIsCapture(fr, fc, tr, tc int) bool {
	return abs(tr-fr) == 2 && abs(tc-fc) == 2
}

func (b *checkersBoard) at(r, c int) int { return b.Cells[r*checkersSize+c] }
func (b *checkersBoard) set(r, c, v int) { b.Cells[r*checkersSize+c] = v }

// canCaptureFrom reports whether the piece at (r,c) has a jump available.
func (b *checkersBoard) canCaptureFrom(r, c int) bool {
	piece := b.at(r, c)
	player := ckOwner(piece)
	if player == 0 {
		return false
	}
	dirs := [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	for _, d := range dirs {
		if !ckDirectionOK(piece, d[0]) {
			continue
		}
		mr, mc := r+d[0], c+d[1]
		tr, tc := r+2*d[0], c+2*d[1]
		if !ckInBounds(tr, tc) {
			continue
		}
		mid := b.at(mr, mc)
		if mid != ckEmpty && ckOwner(mid) != player && b.at(tr, tc) == ckEmpty {
			return true
		}
	}
	return false
}

func (b *checkersBoard) hasCapture(player int) bool {
	for r := 0; r < checkersSize; r++ {
		for c := 0; c < checkersSize; c++ {
			if ckOwner(b.at(r, c)) == player && b.canCaptureFrom(r, c) {
				return true
			}
		}
	}
	return false
}

// hasAnyMove reports whether the player has a simple move or a capture.
func (b *checkersBoard) hasAnyMove(player int) bool {
	dirs := [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	for r := 0; r < checkersSize; r++ {
		for c := 0; c < checkersSize; c++ {
			piece := b.at(r, c)
			if ckOwner(piece) != player {
				continue
			}
			for _, d := range dirs {
				if !ckDirectionOK(piece, d[0]) {
					continue
				}
				nr, nc := r+d[0], c+d[1]
				if ckInBounds(nr, nc) && b.at(nr, nc) == ckEmpty {
					return true
				}
			}
			if b.canCaptureFrom(r, c) {
				return true
			}
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
