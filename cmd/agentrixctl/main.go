// Command agentrixctl is a terminal client for the Agentrix conversation API.
package main

func main() {
	Execute()
}
