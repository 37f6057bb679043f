package main

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	if c.HTTP != "" {
		return deps.MCP.RunHTTP(deps.Ctx, c.HTTP)
	}
	return deps.MCP.Run(deps.Ctx)
}
