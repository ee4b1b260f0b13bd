package task

// Run executes tasks in order against one node and returns the number of
// tasks that changed (or, in check mode, would change) the node. It stops at
// the first error.
func Run(tc *Context, tasks []Task) (changed int, err error) {
	halt := tc.Halt
	if halt == nil {
		halt = tc.Ctx
	}
	for _, t := range tasks {
		if err := halt.Err(); err != nil {
			return changed, err
		}
		done, err := t.Check(tc)
		if err != nil {
			return changed, err
		}
		if done {
			tc.Log.Debugf("%s: already satisfied", t.Name())
			continue
		}
		changed++
		if tc.CheckMode {
			tc.Log.Infof("%s: would apply", t.Name())
			continue
		}
		tc.Log.Infof("%s: applying", t.Name())
		if err := t.Apply(tc); err != nil {
			return changed, err
		}
	}
	return changed, nil
}
