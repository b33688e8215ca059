/*
Copyright © 2024 Dean
*/
package main

import "docbuddy/cmd"

func main() {
	cmd.Execute()
}
