package main

var VERSION = "dev"
