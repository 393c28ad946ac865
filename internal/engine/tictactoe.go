// internal/engine/tictactoe.go
package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// ticTacToe is the placement game: players alternate marking empty cells
// on an N×N board, first run of win_length marks wins, full board draws.
type ticTacToe struct {
	base
	size   int
	winLen int
}

// tttBoard holds cell ownership as player index + 1 (0 = empty), row
// major.
type tttBoard struct {
	Size  int   `json:"size"`
	Cells []int `json:"cells"`
}

// tttMove is the wire payload for one placement.
type tttMove struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

func tictactoeMeta() Meta {
	rules := []RuleSpec{
		{Name: "board_size", Type: RuleInt, Min: 3, Max: 15, Default: 3, Description: "side length of the square board"},
		{Name: "win_length", Type: RuleInt, Min: 3, Max: 5, Default: 3, Description: "marks in a row needed to win"},
	}
	return Meta{
		Name:        "tictactoe",
		DisplayName: "Tic-Tac-Toe",
		MinPlayers:  2,
		MaxPlayers:  2,
		Rules:       append(rules, timingRules(PolicyEndGame)...),
	}
}

func newTicTacToe(cfg Config) (Engine, error) {
	b, err := newBase(tictactoeMeta(), cfg)
	if err != nil {
		return nil, err
	}
	e := &ticTacToe{base: b, size: b.intRule("board_size"), winLen: b.intRule("win_length")}
	if e.winLen > e.size {
		return nil, &ConfigError{Field: "win_length", Detail: fmt.Sprintf("win_length %d exceeds board_size %d", e.winLen, e.size)}
	}
	return e, nil
}

func (e *ticTacToe) InitialState(now time.Time) (*State, error) {
	board := tttBoard{Size: e.size, Cells: make([]int, e.size*e.size)}
	return e.newState(board, now)
}

func (e *ticTacToe) ValidateMove(st *State, playerID string, move json.RawMessage) Verdict {
	if v := guardMove(st, playerID); !v.Valid {
		return v
	}
	mv, err := decodeTTTMove(move)
	if err != nil {
		return Deny("malformed move: %v", err)
	}
	var board tttBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return Deny("corrupt board state")
	}
	if *mv.Row < 0 || *mv.Row >= board.Size || *mv.Col < 0 || *mv.Col >= board.Size {
		return Deny("cell (%d,%d) is off the board", *mv.Row, *mv.Col)
	}
	if board.Cells[*mv.Row*board.Size+*mv.Col] != 0 {
		return Deny("cell (%d,%d) is already occupied", *mv.Row, *mv.Col)
	}
	return Allow()
}

func (e *ticTacToe) ApplyMove(st *State, playerID string, move json.RawMessage, now time.Time) error {
	mv, err := decodeTTTMove(move)
	if err != nil {
		return err
	}
	var board tttBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return err
	}
	board.Cells[*mv.Row*board.Size+*mv.Col] = st.PlayerIndex(playerID) + 1
	raw, err := json.Marshal(board)
	if err != nil {
		return err
	}
	st.Board = raw
	recordMove(st, playerID, move, now)
	return nil
}

func (e *ticTacToe) CheckResult(st *State) (Result, string) {
	var board tttBoard
	if err := json.Unmarshal(st.Board, &board); err != nil {
		return st.Result, st.WinnerID
	}
	full := true
	for idx, mark := range board.Cells {
		if mark == 0 {
			full = false
			continue
		}
		if hasRun(board, idx/board.Size, idx%board.Size, e.winLen) {
			return ResultPlayerWin, st.PlayerIDs[mark-1]
		}
	}
	if full {
		return ResultDraw, ""
	}
	return ResultInProgress, ""
}

// hasRun scans the four line directions from (row,col) and reports a run
// of at least winLen equal marks through that cell.
func hasRun(board tttBoard, row, col, winLen int) bool {
	mark := board.Cells[row*board.Size+col]
	dirs := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for r, c := row+d[0], col+d[1]; inBounds(r, c, board.Size) && board.Cells[r*board.Size+c] == mark; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; inBounds(r, c, board.Size) && board.Cells[r*board.Size+c] == mark; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= winLen {
			return true
		}
	}
	return false
}

func inBounds(r, c, size int) bool {
	return r >= 0 && r < size && c >= 0 && c < size
}

func decodeTTTMove(move json.RawMessage) (tttMove, error) {
	var mv tttMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return mv, fmt.Errorf("expected {row, col}: %w", err)
	}
	if mv.Row == nil || mv.Col == nil {
		return mv, fmt.Errorf("move requires row and col")
	}
	return mv, nil
}
