// internal/engine/clobber.go
package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// clobber is the capture game: a move takes one of your pieces onto an
// orthogonally adjacent opposing piece, removing it from the board. The
// player who cannot move on their turn loses; the game never draws.
type clobber struct {
	base
	rows int
	cols int
}

// clobberBoard stores cell ownership as player index + 1, row major.
type clobberBoard struct {
	Rows  int   `json:"rows"`
	Cols  int   `json:"cols"`
	Cells []int `json:"cells"`
}

type cellRef struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

type clobberMove struct {
	From *cellRef `json:"from"`
	To   *cellRef `json:"to"`
}

func clobberMeta() Meta {
	rules := []RuleSpec{
		{Name: "rows", Type: RuleInt, Min: 4, Max: 10, Default: 5, Description: "board rows"},
		{Name: "cols", Type: RuleInt, Min: 4, Max: 10, Default: 6, Description: "board columns"},
		{
			Name: "starting_pattern", Type: RuleEnum,
			Options: []string{"checkerboard", "stripes"},
			Default: "checkerboard", Description: "initial piece layout",
		},
	}
	return Meta{
		Name:        "clobber",
		DisplayName: "Clobber",
		MinPlayers:  2,
		MaxPlayers:  2,
		Rules:       append(rules, timingRules(PolicySkipTurn)...),
	}
}

func newClobber(cfg Config) (Engine, error) {
	b, err := newBase(clobberMeta(), cfg)
	if err != nil {
		return nil, err
	}
	return &clobber{base: b, rows: b.intRule("rows"), cols: b.intRule("cols")}, nil
}

func (e *clobber) InitialState(now time.Time) (*State, error) {
	board := clobberBoard{Rows: e.rows, Cols: e.cols, Cells: make([]int, e.rows*e.cols)}
	pattern := e.stringRule("starting_pattern")
	for r := 0; r < e.rows; r++ {
		for c := 0; c < e.cols; c++ {
			switch pattern {
			case "stripes":
				board.Cells[r*e.cols+c] = r%2 + 1
			default: // checkerboard
				board.Cells[r*e.cols+c] = (r+c)%2 + 1
			}
		}
	}
	return e.newState(board, now)
}

func (e *clobber) ValidateMove(st *State, playerID string, move json.RawMessage) Verdict {
	if v := guardMove(st, playerID); !v.Valid {
		return v
	}
	mv, err := decodeClobberMove(move)
	if err != nil {
		return Deny("malformed move: %v", err)
	}
	var board clobberBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return Deny("corrupt board state")
	}
	fr, fc, tr, tc := *mv.From.Row, *mv.From.Col, *mv.To.Row, *mv.To.Col
	if !board.inBounds(fr, fc) || !board.inBounds(tr, tc) {
		return Deny("move is off the board")
	}
	mine := st.PlayerIndex(playerID) + 1
	if board.at(fr, fc) != mine {
		return Deny("no piece of yours at (%d,%d)", fr, fc)
	}
	if !orthAdjacent(fr, fc, tr, tc) {
		return Deny("destination (%d,%d) is not orthogonally adjacent", tr, tc)
	}
	target := board.at(tr, tc)
	if target == 0 {
		return Deny("destination (%d,%d) is empty; clobber moves must capture", tr, tc)
	}
	if target == mine {
		return Deny("cannot capture your own piece at (%d,%d)", tr, tc)
	}
	return Allow()
}

func (e *clobber) ApplyMove(st *State, playerID string, move json.RawMessage, now time.Time) error {
	mv, err := decodeClobberMove(move)
	if err != nil {
		return err
	}
	var board clobberBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return err
	}
	mine := st.PlayerIndex(playerID) + 1
	board.set(*mv.From.Row, *mv.From.Col, 0)
	board.set(*mv.To.Row, *mv.To.Col, mine)
	raw, err := json.Marshal(board)
	if err != nil {
		return err
	}
	st.Board = raw
	recordMove(st, playerID, move, now)
	return nil
}

// CheckResult declares a loss for the player due to act when they have
// no capture available.
func (e *clobber) CheckResult(st *State) (Result, string) {
	var board clobberBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return st.Result, st.WinnerID
	}
	toAct := nextToAct(st)
	if board.hasMove(toAct + 1) {
		return ResultInProgress, ""
	}
	return ResultPlayerWin, winnerAgainst(st, toAct)
}

func (b *clobberBoard) inBounds(r, c int) bool {
	return r >= 0 && r < b.Rows && c >= 0 && c < b.Cols
}

func (b *clobberBoard) at(r, c int) int    { return b.Cells[r*b.Cols+c] }
func (b *clobberBoard) set(r, c, mark int) { b.Cells[r*b.Cols+c] = mark }

// hasMove reports whether any piece of mark has an adjacent enemy piece.
func (b *clobberBoard) hasMove(mark int) bool {
	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			if b.at(r, c) != mark {
				continue
			}
			for _, d := range dirs {
				nr, nc := r+d[0], c+d[1]
				if b.inBounds(nr, nc) && b.at(nr, nc) != 0 && b.at(nr, nc) != mark {
					return true
				}
			}
		}
	}
	return false
}

func orthAdjacent(fr, fc, tr, tc int) bool {
	dr, dc := tr-fr, tc-fc
	if dr < 0 {
		dr = -dr
	}
	if dc < 0 {
		dc = -dc
	}
	return dr+dc == 1
}

func decodeClobberMove(move json.RawMessage) (clobberMove, error) {
	var mv clobberMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return mv, fmt.Errorf("expected {from:{row,col}, to:{row,col}}: %w", err)
	}
	if mv.From == nil || mv.To == nil || mv.From.Row == nil || mv.From.Col == nil || mv.To.Row == nil || mv.To.Col == nil {
		return mv, fmt.Errorf("move requires from and to cells")
	}
	return mv, nil
}
